package realtime

// Event names sent to clients in the envelope's "event" field.
const (
	EventFileUploaded    = "file_uploaded"
	EventFileDeleted     = "file_deleted"
	EventFileUpdated     = "file_updated"
	EventMessageNew      = "message_new"
	EventMessageDeleted  = "message_deleted"
	EventConversationNew = "conversation_new"
	EventConversationDel = "conversation_deleted"
	EventPresence        = "presence"
)

// Envelope is the JSON frame written to WebSocket clients.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
