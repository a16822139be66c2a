// Package http implements the HTTP handlers of the export service. Handlers
// only parse requests, call the run manager and render responses; run
// semantics live in the operations package.
//
// # Endpoints
//
//	POST   /api/v1/exports                  start a run, 202 with the PENDING run
//	GET    /api/v1/exports                  list runs (?mode=&status=&limit=)
//	GET    /api/v1/exports/{id}             one run (?matrix=true adds the cells)
//	GET    /api/v1/exports/{id}/cells.csv   the run's cell matrix as CSV
//	DELETE /api/v1/exports/{id}             cancel an active run
//	POST   /api/v1/exports/{id}/cancel      same as DELETE
//	POST   /api/v1/exports/{id}/retry-merge merge a FAILED run's matrix again
//	GET    /api/v1/workbooks                exported workbooks (?mode=)
//	GET    /api/v1/workbooks/{mode}/{year}  download one workbook
//	GET    /healthz, /readyz                liveness and readiness
//	GET    /api/v1/version                  build information
//
// # Error Handling
//
// All errors are rendered as RFC 7807 problem details by the error handler
// in internal/errors:
//
//	{
//	    "type": "/errors/conflict",
//	    "title": "Conflict",
//	    "status": 409,
//	    "detail": "run 42 is DONE and cannot be cancelled",
//	    "instance": "/api/v1/exports/42",
//	    "trace_id": "..."
//	}
//
// A retried merge that fails again is not an HTTP error: the run is
// returned with status FAILED and its error.
package http
