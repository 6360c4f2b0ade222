// Package http provides HTTP handlers and middleware for the chat and
// notification API.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a bearer token. Body: {"email","password"}.
//     Response: {"token","expires_at","principal"}.
//   - GET /chats: chats the caller participates in, most recently active first.
//   - POST /chat/{chatId}/messages: sends a message. Body:
//     {"content","type","attachments"}. Response 201 {"message"}.
//   - GET /chat/{chatId}/messages?limit&before: history page, oldest first.
//   - PATCH /chat/messages/{messageId}/read: records a read receipt.
//   - GET /notifications?limit&unread, GET /notifications/unread-count,
//     PATCH /notifications/{id}/read, POST /notifications/read-all: inbox.
//   - GET /presence: online members of the caller's company.
//   - GET /ws: live transport upgrade, see package socket.
//   - GET /healthz, GET /metrics: operations.
//
// Every endpoint except /sessions, /healthz, /metrics and /ws requires an
// Authorization: Bearer token. Error bodies carry a Japanese message and,
// where the client needs to branch, an error_code.
package http
