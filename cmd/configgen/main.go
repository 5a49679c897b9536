package main

import (
	"flag"
	"log"

	"github.com/danmuck/raknet/internal/config"
)

func main() {
	kind := flag.String("kind", "listen", "config kind: listen|dial")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to the per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if _, err := config.Template(*kind); err != nil {
		log.Fatal(err)
	}

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s (name=%s listen=%s units=%d)", *kind, path, cfg.Name, cfg.Listen, len(cfg.Units()))
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	return "cmd/rakpeer/" + kind + ".toml"
}
