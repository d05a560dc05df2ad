package config

// TransportConfig describes one transport kind and its endpoints.
// Example YAML:
// transports:
//   - kind: tcp
//     listen: [":7788"]
//     dial:
//       - address: "10.0.0.2:7788"
//   - kind: quic
//     listen: [":7789"]
//   - kind: pipe
//     listen: ["\\\\.\\pipe\\sis"]
//   - kind: shared
//     listen: ["sis-local"]
type TransportConfig struct {
    Kind   string       `mapstructure:"kind" yaml:"kind"`
    Listen []string     `mapstructure:"listen" yaml:"listen,omitempty"`
    Dial   []DialConfig `mapstructure:"dial" yaml:"dial,omitempty"`
}

// DialConfig describes a server a client connects to.
type DialConfig struct {
    Address string `mapstructure:"address" yaml:"address"`
    // Name is an optional label used in logs.
    Name string `mapstructure:"name" yaml:"name,omitempty"`
}

// FirstDial returns the first configured dial target and its kind.
func (c *Config) FirstDial() (kind string, target DialConfig, ok bool) {
    for _, tc := range c.Transports {
        if len(tc.Dial) > 0 {
            return tc.Kind, tc.Dial[0], true
        }
    }
    return "", DialConfig{}, false
}
