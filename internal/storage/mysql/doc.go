// Package mysql stores registry records in a single MySQL key/value table.
// Each registry mutation is committed in one transaction; schema changes are
// applied from the embedded migrations in deploy/migrations and tracked in a
// single-row registry_schema table.
package mysql
