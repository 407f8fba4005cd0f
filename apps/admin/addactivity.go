package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

// addActivity registers a playable activity from a manifest file.
func (cli *commandLine) addActivity(slug, title, manifestPath string, publish bool) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	var manifest simulation.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}

	na := simulation.NewActivity{
		Slug:        slug,
		Title:       title,
		Manifest:    manifest,
		IsPublished: publish,
	}
	if err := na.Validate(cli.validate); err != nil {
		return err
	}

	act, err := cli.activitySvc.Create(context.Background(), na)
	if err != nil {
		return err
	}
	logger.Printf("activity %q registered (id=%s, published=%t)", act.Slug, act.ID, act.IsPublished)
	return nil
}
