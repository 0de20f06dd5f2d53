package kinds

import "github.com/JonMunkholm/crm/internal/core"

func init() {
	registerContacts()
	registerDeals()
}

// Contacts carry a single name, sniffed from several spreadsheet layouts on
// import. Listing is unpaginated unless the caller asks for a limit.
func registerContacts() {
	core.Register(core.KindDefinition{
		Key:         "contacts",
		Label:       "Contacts",
		Prefix:      "c",
		Table:       "contacts",
		ImportField: "contacts",
		ScalarField: "contact",
		Normalize:   core.ScalarRow("contact", core.ContactCandidates...),
		OwnerGated:  true,
	})
}

// Deals are free-form: no header contract, values are cleaned per field.
func registerDeals() {
	core.Register(core.KindDefinition{
		Key:          "deals",
		Label:        "Deals",
		Prefix:       "d",
		Table:        "deals",
		ImportField:  "deals",
		Normalize:    core.DealRow,
		OwnerGated:   true,
		DefaultLimit: 100,
		MaxLimit:     1000,
	})
}
