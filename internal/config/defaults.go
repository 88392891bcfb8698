package config

import "path/filepath"

func Defaults() *Config {
	cfg := &Config{
		General: GeneralConfig{
			OutputDir: ".",
			LogLevel:  "info",
		},
		Backend: BackendConfig{
			APIBase:           "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKeyEnv:         "DASHSCOPE_API_KEY",
			AnswerModel:       "qwen3-vl-plus",
			NamingModel:       "qwen3-max",
			EnableThinking:    true,
			ThinkingBudget:    21920,
			TimeoutSeconds:    300,
			MaxRetries:        1,
			RetryDelaySeconds: 1,
		},
		Browser: BrowserConfig{
			URL:                  "https://szfilehelper.weixin.qq.com/",
			ProfileDir:           filepath.Join(DefaultConfigDir(), "chrome-profile"),
			Headless:             false,
			DownloadDir:          "~/Downloads",
			DownloadWaitSeconds:  2,
			LookupTimeoutSeconds: 10,
			LoginTimeoutSeconds:  60,
		},
		Watcher: WatcherConfig{
			PollIntervalSeconds: 5,
			ErrorBackoffSeconds: 2,
			EchoMarker:          "bot",
		},
		Context: ContextConfig{
			MaxEntries: 5,
		},
		Render: RenderConfig{
			Pandoc:     "pandoc",
			PDFEngine:  "xelatex",
			CJKFont:    "SimSun",
			MainFont:   "Times New Roman",
			FontFamily: "times",
			Margin:     "1in",
		},
		Ledger: LedgerConfig{
			Enabled: true,
			DBPath:  filepath.Join(DefaultConfigDir(), "ledger.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
	cfg.expandPaths()
	return cfg
}
