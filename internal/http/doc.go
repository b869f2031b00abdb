// Package http exposes the calendar, holding call and facility services.
//
// Every route requires an API key in `X-API-Key` or `Authorization: Bearer`.
//   - POST /calendars, GET /calendars[?facilityId=]: create and list calendars.
//     Body: {"externalCalendarId","facilityId","departmentId","focusUsers","recorders"}.
//   - GET, PATCH, DELETE /calendars/{externalId}: the external id is matched
//     ignoring case. PATCH accepts any subset of the create fields except the
//     external id.
//   - POST /holdingCall/{externalCalendarId} with {"startTime","endTime"} in
//     RFC 3339 opens a holding call; DELETE expires the active one.
//   - POST /facilities, GET /facilities, GET/PATCH/DELETE /facilities/{id}:
//     facility management. Creating a facility provisions its team and can take
//     up to a minute.
//
// Creates answer 201, reads and updates 200, deletes 204. Validation errors
// answer 400 with an `errors` map keyed by field, unknown references 404,
// conflicts 409 and a rejected key 403.
package http
