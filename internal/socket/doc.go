// Package socket is the websocket entry point of the live transport.
//
// A client authenticates during the HTTP handshake with a bearer token,
// either in the Authorization header or in the token query parameter. The
// upgrade only happens after the token resolves to an active user, so an
// unauthenticated client never receives a frame. Each accepted connection is
// registered with the realtime router, implicitly joining its company and
// user channels, and then exchanges {event, data} frames:
//
//	join-chat     {chatId}
//	leave-chat    {chatId}
//	send-message  {chatId, content, type, attachments}
//
// Failures are reported to the originating connection only, as an error
// event carrying {message, code}.
package socket
