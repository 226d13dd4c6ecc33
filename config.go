package main

import (
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFile = "theracd.conf"
	defaultListen     = "localhost:8080"
)

type raspberryConfig struct {
	MotorPin     string `long:"motorpin" description:"GPIO pin enabling the turntable motor"`
	DirectionPin string `long:"directionpin" description:"GPIO pin selecting the rotation direction"`
	DetentPin    string `long:"detentpin" description:"GPIO pin of the detent switch"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Address of the pprof server, disabled when empty"`
}

type config struct {
	ConfigFile  string        `long:"configfile" description:"Path to an ini config file"`
	ShowVersion bool          `short:"V" long:"version" description:"Display version information and exit"`
	Debug       bool          `long:"debug" description:"Log at debug level"`
	Mode        string        `long:"mode" description:"Concurrency discipline of the control module" choice:"unsynchronized" choice:"synchronized" choice:"buggy" choice:"fixed"`
	TimeUnit    time.Duration `long:"timeunit" description:"Wall clock length of one simulated time unit"`
	Turntable   string        `long:"turntable" description:"Turntable hardware" choice:"simulated" choice:"raspberry"`
	Scenario    string        `long:"scenario" description:"Accident scenario to replay" choice:"1" choice:"2" choice:"3" choice:"4" choice:"all" choice:"interactive" choice:"none"`
	Serve       bool          `long:"serve" description:"Serve the HTTP api after the scenarios"`
	Listen      string        `long:"listen" description:"Address of the HTTP api"`
	MaxConns    int           `long:"maxconnections" description:"Maximum concurrent api connections, 0 for no limit"`

	Raspberry raspberryConfig `group:"Raspberry" namespace:"raspberry"`
	Profiling profilingConfig `group:"Profiling" namespace:"profiling"`
}

func defaultConfig() config {
	return config{
		ConfigFile: defaultConfigFile,
		Mode:       "unsynchronized",
		TimeUnit:   time.Second,
		Turntable:  "simulated",
		Scenario:   "all",
		Listen:     defaultListen,
		MaxConns:   64,
		Raspberry: raspberryConfig{
			MotorPin:     "GPIO17",
			DirectionPin: "GPIO27",
			DetentPin:    "GPIO22",
		},
	}
}

// loadConfig parses the command line once to find the config file, reads
// it and then parses the command line again so flags win over the file.
func loadConfig() (*config, error) {
	preCfg := defaultConfig()

	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if _, err := os.Stat(preCfg.ConfigFile); err == nil {
		if err := flags.IniParse(preCfg.ConfigFile, &cfg); err != nil {
			return nil, err
		}
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
