// Command admissionctl operates the library admission engine against PostgreSQL.
//
// It creates the schema, manages inventory, drives single loans through their lifecycle,
// runs the overdue sweep and simulates concurrent demand for one resource. Results are
// printed as JSON. The "memory" driver runs against an in-process store, which is only
// useful for simulate.
//
// Exit codes: 0 on success, 2 on a business rejection, 1 on any other failure.
package main
