package main

import (
	"fmt"
)

// runModels prints the model catalog of every configured provider, the
// same catalog the /models endpoint serves.
func runModels() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.LLM.Providers) == 0 {
		fmt.Println("no providers configured")
		return nil
	}

	fmt.Println("Configured models:")
	for _, pc := range cfg.LLM.Providers {
		marker := "  "
		if pc.Name == cfg.LLM.DefaultProvider {
			marker = "* "
		}
		ptype := pc.Type
		if ptype == "" {
			ptype = "openai"
		}
		fmt.Printf("\n%s%s (%s)\n", marker, pc.Name, ptype)

		models := pc.Models
		if len(models) == 0 && pc.Model != "" {
			models = []string{pc.Model}
		}
		for _, m := range models {
			if m == pc.Model {
				fmt.Printf("      %s (default)\n", m)
			} else {
				fmt.Printf("      %s\n", m)
			}
		}
	}
	fmt.Println("\n* = default provider")
	return nil
}
