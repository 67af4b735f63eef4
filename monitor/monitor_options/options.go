package monitor_options

type Options struct {
	ListenAddress         string `mapstructure:"listen_address"`
	StdoutIntervalSeconds uint64 `mapstructure:"stdout_interval_seconds"`
}

func (o *Options) WithDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.ListenAddress == "" {
		o.ListenAddress = ":7000"
	}
	return o
}
