package config

const (
	defaultConfigPath           = "~/.config/podmirror/config.toml"
	defaultWorkDir              = "~/.local/share/podmirror/site"
	defaultStateDir             = "~/.local/share/podmirror/state"
	defaultLogDir               = "~/.local/share/podmirror/logs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultSourceKind           = SourceYouTubeAPI
	defaultYouTubeBaseURL       = "https://www.googleapis.com/youtube/v3"
	defaultSourceMaxPages       = 4
	defaultSourceTimeout        = 30
	defaultMaxItems             = 5
	defaultMediaExtension       = ".mp3"
	defaultStagingMaxAgeHours   = 24
	defaultYTDLPBinary          = "yt-dlp"
	defaultAudioFormat          = "mp3"
	defaultAcquireTimeout       = 1800
	defaultAcquireMinInterval   = 5
	defaultFeedFile             = "feed.xml"
	defaultFeedTitle            = "Playlist Podcast"
	defaultFeedDescription      = "Audio mirror of a video playlist."
	defaultFeedLanguage         = "en-us"
	defaultPubDateOffset        = 60
	defaultGitBinary            = "git"
	defaultPublishBranch        = "main"
	defaultCommitMessage        = "Update podcast feed"
	defaultAuthorName           = "podmirror"
	defaultAuthorEmail          = "podmirror@localhost"
	defaultPushAttempts         = 3
	defaultNotifyRequestTimeout = 10
)

const (
	// SourceYouTubeAPI reads the playlist through the YouTube Data API v3.
	SourceYouTubeAPI = "youtube_api"
	// SourceYTDLP reads the playlist with yt-dlp --flat-playlist.
	SourceYTDLP = "ytdlp"
)

// DefaultStrategies is the ordered list of yt-dlp invocation variants tried
// for every item until one succeeds.
var DefaultStrategies = []string{"default", "android", "best_audio", "ipv4", "web_safari"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Source: Source{
			Kind:           defaultSourceKind,
			BaseURL:        defaultYouTubeBaseURL,
			MaxPages:       defaultSourceMaxPages,
			TimeoutSeconds: defaultSourceTimeout,
		},
		Sync: Sync{
			MaxItems:           defaultMaxItems,
			MediaExtension:     defaultMediaExtension,
			StagingMaxAgeHours: defaultStagingMaxAgeHours,
		},
		Acquire: Acquire{
			YTDLPBinary:        defaultYTDLPBinary,
			AudioFormat:        defaultAudioFormat,
			TimeoutSeconds:     defaultAcquireTimeout,
			Strategies:         append([]string(nil), DefaultStrategies...),
			MinIntervalSeconds: defaultAcquireMinInterval,
		},
		Feed: Feed{
			File:                 defaultFeedFile,
			Title:                defaultFeedTitle,
			Description:          defaultFeedDescription,
			Language:             defaultFeedLanguage,
			PubDateOffsetMinutes: defaultPubDateOffset,
		},
		Publish: Publish{
			GitBinary:     defaultGitBinary,
			Branch:        defaultPublishBranch,
			Force:         true,
			CommitMessage: defaultCommitMessage,
			AuthorName:    defaultAuthorName,
			AuthorEmail:   defaultAuthorEmail,
			PushAttempts:  defaultPushAttempts,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Episodes:       true,
			Errors:         true,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
