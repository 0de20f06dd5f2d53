package kinds

import "github.com/JonMunkholm/crm/internal/core"

// Spreadsheet-backed kinds keep imported rows verbatim. Their update and
// delete paths are not owner-gated.
const (
	sheetDefaultLimit = 1000
	sheetMaxLimit     = 5000
)

// PipelineHeaders are the columns of the deal pipeline sheet. "Seniot" is
// spelled as it appears in the source spreadsheets.
var PipelineHeaders = []string{
	"Company", "Date", "Sector", "Seniot", "Junior team", "Source",
	"Source Name", "Type", "Size, RUB mn", "Status", "Next connection",
	"Comments",
}

// CompanyHeaders are the columns of the companies-to-reach sheet.
var CompanyHeaders = []string{
	"Company", "Sector", "Contacted person", "Methods to reach out",
	"Status", "Comments",
}

// AdvisorHeaders are the columns of the advisors sheet.
var AdvisorHeaders = []string{
	"Advisor", "Contact persons", "Type", "Comment", "Responsible",
	"Date of the last meeting of the responsible person",
	"Months since the last meeting",
}

// InvestorHeaders are the columns of the investors sheet.
var InvestorHeaders = []string{
	"Investor", "Connection", "Target ticket", "Target sectors",
	"Relevant?", "Comments", "Discussed fund", "Discussed A3",
	"Discussed Lab Vkusa",
}

func init() {
	registerSheet("pipeline", "Pipeline", "p", PipelineHeaders)
	registerSheet("companies", "Companies to reach", "cr", CompanyHeaders)
	registerSheet("advisors", "Advisors", "a", AdvisorHeaders)
	registerSheet("investors", "Investors", "i", InvestorHeaders)
}

func registerSheet(key, label, prefix string, headers []string) {
	core.Register(core.KindDefinition{
		Key:             key,
		Label:           label,
		Prefix:          prefix,
		Table:           key,
		ImportField:     "items",
		ExpectedHeaders: headers,
		Normalize:       core.RawRow,
		DefaultLimit:    sheetDefaultLimit,
		MaxLimit:        sheetMaxLimit,
	})
}
