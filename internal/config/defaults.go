package config

const (
	defaultOutputDir             = "~/Videos/dubsync"
	defaultStateDir              = "~/.local/share/dubsync"
	defaultLogDir                = "~/.local/share/dubsync/logs"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultDriftThresholdSeconds = 0.3
	defaultTickIntervalMS        = 250
	defaultPreviewBackend        = PreviewBackendFFplay
	defaultFFplayBinary          = "ffplay"
	defaultExportHost            = ExportHostFFmpeg
	defaultStopPolicy            = "first"
	defaultContainer             = "webm"
	defaultVideoCodec            = "libvpx-vp9"
	defaultAudioCodec            = "libopus"
	defaultChunkBytes            = 64 * 1024
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultBrowserTimeoutSeconds = 30
	defaultDubbingBaseURL        = "http://127.0.0.1:3001"
	defaultDubbingSampleRate     = 24000
	defaultDubbingTimeoutSeconds = 300
	defaultDubbingLanguage       = "es"
	defaultShareFolder           = "dubsync"
	defaultShareCredentialsFile  = "~/.config/dubsync/gdrive_credentials.json"
	defaultShareTokenFile        = "~/.config/dubsync/gdrive_token.json"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

const (
	PreviewBackendFFplay  = "ffplay"
	PreviewBackendVirtual = "virtual"

	ExportHostFFmpeg  = "ffmpeg"
	ExportHostBrowser = "browser"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Playback: Playback{
			DriftThresholdSeconds: defaultDriftThresholdSeconds,
			TickIntervalMS:        defaultTickIntervalMS,
			PreviewBackend:        defaultPreviewBackend,
			FFplayBinary:          defaultFFplayBinary,
		},
		Export: Export{
			Host:          defaultExportHost,
			StopPolicy:    defaultStopPolicy,
			Container:     defaultContainer,
			VideoCodec:    defaultVideoCodec,
			AudioCodec:    defaultAudioCodec,
			ChunkBytes:    defaultChunkBytes,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Browser: Browser{
			Headless:       true,
			TimeoutSeconds: defaultBrowserTimeoutSeconds,
		},
		Dubbing: Dubbing{
			BaseURL:         defaultDubbingBaseURL,
			SampleRate:      defaultDubbingSampleRate,
			TimeoutSeconds:  defaultDubbingTimeoutSeconds,
			DefaultLanguage: defaultDubbingLanguage,
		},
		Share: Share{
			CredentialsFile: defaultShareCredentialsFile,
			TokenFile:       defaultShareTokenFile,
			FolderName:      defaultShareFolder,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
