package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ MetricsRecorder  = discardMetrics{}
	_ BackoffScheduler = ExponentialBackoffScheduler{}
	_ BackoffScheduler = FixedBackoff(0)
	_ RawConfigLoader  = EnvConfigLoader{}
	_ RawConfigLoader  = YAMLFileLoader{}
	_ RawConfigLoader  = LayeredConfigLoader{}
	_ ConfigProvider   = (*CfgxConfigProvider)(nil)
	_ OptionsResolver  = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
