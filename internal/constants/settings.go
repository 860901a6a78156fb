package constants

const (
	SettingTimezone             = "timezone"
	SettingNotificationsEnabled = "notifications_enabled"
	SettingReminderGraceMin     = "reminder_grace_min"

	DefaultTimezone             = "Local" // Use system local timezone by default
	DefaultNotificationsEnabled = true
	DefaultReminderGraceMin     = 10
)
