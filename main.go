package main

import (
	"flag"
	"log"

	"github.com/samuelfneumann/goloco/config"
)

func main() {
	configPath := flag.String("config", "",
		"path to a JSON configuration file; defaults used when empty")
	flag.Parse()

	var conf config.Config
	var err error
	if *configPath == "" {
		conf, err = config.Default()
	} else {
		conf, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	exp, err := conf.CreateExperiment()
	if err != nil {
		log.Fatalf("could not create experiment: %v", err)
	}

	if err := exp.Run(); err != nil {
		log.Fatalf("experiment failed: %v", err)
	}

	if err := exp.Save(); err != nil {
		log.Fatalf("could not save experiment data: %v", err)
	}
}
