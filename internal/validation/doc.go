// Package validation checks bucket names, object keys and object metadata
// before they are sent to an object store.
//
// Every check runs locally so an invalid run configuration fails before any
// remote call or local generation work happens.
package validation
