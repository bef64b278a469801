// Package agentclient is the HTTP client for the remote agent service.
//
// # Endpoints
//
//	GET    {base}/apps/{app}/users/{user}/sessions        list sessions
//	POST   {base}/apps/{app}/users/{user}/sessions        create a session
//	GET    {base}/apps/{app}/users/{user}/sessions/{id}   session with stored events
//	DELETE {base}/apps/{app}/users/{user}/sessions/{id}   delete a session
//	POST   {base}/run_sse                                 send a message, streamed reply
//	POST   {base}/vehicle_service_logs/api/files/process-file   extract a spreadsheet
//
// The app and user segments come from the authctx.Context attached to the
// request context, or the client's own when none is attached.
//
// # Errors
//
// Transport failures wrap apperr.ErrNetworkUnavailable. Non-2xx responses
// return *apperr.RemoteError, which matches apperr.ErrRemoteRejected. A
// streamed reply that goes quiet for longer than the idle timeout is
// cancelled with apperr.ErrStreamStalled.
//
// # Timeouts
//
// Unary calls use RequestTimeout end to end. Streaming calls have no
// overall deadline; only the gap between received bytes is bounded.
package agentclient
