package zone

// NotificationType names a notification on the wire.
type NotificationType string

const (
	NotificationClientJoined     NotificationType = "client_joined"
	NotificationClientQuit       NotificationType = "client_quit"
	NotificationZoneNameChanged  NotificationType = "zone_name_changed"
	NotificationMemberCreated    NotificationType = "member_created"
	NotificationMemberUpdated    NotificationType = "member_updated"
	NotificationAccountCreated   NotificationType = "account_created"
	NotificationAccountUpdated   NotificationType = "account_updated"
	NotificationTransactionAdded NotificationType = "transaction_added"
)

// Notification is a change pushed by the service to every client that has
// joined the zone.
type Notification interface {
	NotificationType() NotificationType
}

// ZoneNotification pairs a notification with the zone it belongs to.
type ZoneNotification struct {
	ZoneID       string
	Notification Notification
}

type ClientJoined struct {
	ConnectionID string    `json:"connection_id"`
	PublicKey    PublicKey `json:"public_key"`
}

type ClientQuit struct {
	ConnectionID string    `json:"connection_id"`
	PublicKey    PublicKey `json:"public_key"`
}

type ZoneNameChanged struct {
	Name string `json:"name,omitempty"`
}

type MemberCreated struct {
	Member Member `json:"member"`
}

type MemberUpdated struct {
	Member Member `json:"member"`
}

type AccountCreated struct {
	Account Account `json:"account"`
}

type AccountUpdated struct {
	ActingAs string  `json:"acting_as"`
	Account  Account `json:"account"`
}

type TransactionAdded struct {
	Transaction Transaction `json:"transaction"`
}

// UnknownNotification stands in for notification types this client does not
// understand. Consumers ignore it.
type UnknownNotification struct {
	Type NotificationType
}

func (ClientJoined) NotificationType() NotificationType     { return NotificationClientJoined }
func (ClientQuit) NotificationType() NotificationType       { return NotificationClientQuit }
func (ZoneNameChanged) NotificationType() NotificationType  { return NotificationZoneNameChanged }
func (MemberCreated) NotificationType() NotificationType    { return NotificationMemberCreated }
func (MemberUpdated) NotificationType() NotificationType    { return NotificationMemberUpdated }
func (AccountCreated) NotificationType() NotificationType   { return NotificationAccountCreated }
func (AccountUpdated) NotificationType() NotificationType   { return NotificationAccountUpdated }
func (TransactionAdded) NotificationType() NotificationType { return NotificationTransactionAdded }
func (n UnknownNotification) NotificationType() NotificationType {
	return n.Type
}
