package constants

const (
	AppName            = "streak"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/streak/streak.db"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// ReminderFormat is the accepted layout for reminder fire-times on the command line
	ReminderFormat = "2006-01-02T15:04"

	// Environment
	EnvConnection = "STREAK_DB_CONNECTION"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "streak-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifierLockfileName   = "streak-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.streak"
	TrayProcessName        = "streak-tray"
	NotifierSecretHeader   = "X-Streak-Secret"

	// Catalog constants
	DefaultListenerBuffer = 64
)
