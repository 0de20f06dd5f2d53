// Package core provides the business logic for the CRM records backend.
//
// This package contains all domain logic independent of any transport or
// storage engine. It can be used by HTTP handlers, CLI commands, or tests
// without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Kind Definitions: each entity kind (contacts, deals, pipeline,
//     companies, advisors, investors) is registered with its id prefix,
//     storage table, import header contract and row normalizer.
//   - Service: the main entry point for record CRUD, import, export, users
//     and authentication.
//   - Permissions: [CanEdit] and [CanDelete] gate mutation of owned records.
//   - Rate Limiter: a process-local fixed-window counter guarding imports
//     and logins.
//   - Audit: a best-effort log of every successful mutation.
//
// # Kind Registry
//
// Kinds are registered at init time using [Register]:
//
//	core.Register(core.KindDefinition{
//	    Key:             "advisors",
//	    Prefix:          "a",
//	    Table:           "advisors",
//	    ExpectedHeaders: []string{"Advisor", "Contact persons", ...},
//	    Normalize:       core.RawRow,
//	    DefaultLimit:    1000,
//	    MaxLimit:        5000,
//	})
//
// # Import
//
// [Service.Import] runs one algorithm for every kind:
//
//  1. Empty and oversized batches are rejected with a [ValidationError]
//  2. The limiter allows a few imports per user and kind per window
//  3. The first row must carry every expected header of the kind
//  4. Each row is normalized; rows with nothing to keep are skipped
//  5. Surviving rows are inserted in a single transaction
//
// # Error Handling
//
// Operations return sentinel errors ([ErrNotFound], [ErrForbidden],
// [ErrConflict], [ErrRateLimited], [ErrUnauthorized]) or a [ValidationError],
// wrapped with context. [MapError] converts them to user-facing messages
// with support codes.
//
// # Audit Logging
//
// Audit entries are written after the primary write commits. A failed audit
// write is logged and dropped; it never changes the result of the operation
// it describes.
package core
