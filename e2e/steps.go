package e2e

import (
	"github.com/cucumber/godog"

	"shelterops/e2e/steps/common"
	"shelterops/e2e/steps/registration"
	"shelterops/e2e/steps/shelter"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Actor, raw requests and response assertions
	common.RegisterSteps(ctx, tc)

	// Shelter lifecycle and views
	shelter.RegisterSteps(ctx, tc)

	// Persons, check-in/out and households
	registration.RegisterSteps(ctx, tc)
}
