package models

const (
	RoleCustomer = "customer"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DateLayout is the wire and display layout of calendar dates.
	DateLayout = "2006-01-02"

	// DefaultMinRentalDays minimum billable rental length
	DefaultMinRentalDays = 7

	// DefaultMaxAdvanceDays how far ahead a rental may start
	DefaultMaxAdvanceDays = 365

	// DefaultSessionTTL idle lifetime of a workflow session in seconds
	DefaultSessionTTL = 30 * 60

	// RateLimitMessages messages per window for non-staff chats
	RateLimitMessages = 20

	// RateLimitWindow rate limit window in seconds
	RateLimitWindow = 60

	// LocationsCacheTTL lifetime of cached location lists in seconds
	LocationsCacheTTL = 5 * 60

	// NotifierQueueSize capacity of the receipt notifier queue
	NotifierQueueSize = 128
)
