package config

import "time"

// VmachineConfig describes the remote SOAP service.
//
// InsecureSkipVerify defaults to true: the production endpoint presents a
// certificate that does not validate. Set VMACHINE_INSECURE_SKIP_VERIFY=false
// wherever the upstream chain is trusted.
type VmachineConfig struct {
	Endpoint           string        `env:"VMACHINE_ENDPOINT"`
	WSDL               string        `env:"VMACHINE_WSDL" default:""`
	AuthKey            string        `env:"VMACHINE_AUTH_KEY" default:""`
	Timeout            time.Duration `env:"VMACHINE_TIMEOUT" default:"30s"`
	InsecureSkipVerify bool          `env:"VMACHINE_INSECURE_SKIP_VERIFY" default:"true"`
}
