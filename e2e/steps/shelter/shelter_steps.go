package shelter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	LastStatus() int
	LastBody() string
	GetResponseField(field string) (any, error)
	GetResponseString(field string) (string, error)
	Save(name, value string)
	Saved(name string) (string, error)
	RunID() string
}

// RegisterSteps registers shelter lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &shelterSteps{tc: tc}

	ctx.Step(`^an? "([^"]*)" shelter "([^"]*)" with capacity (\d+)$`, steps.createShelter)
	ctx.Step(`^I set the status of shelter "([^"]*)" to "([^"]*)"$`, steps.setStatus)
	ctx.Step(`^I mark shelter "([^"]*)" as unavailable$`, steps.markUnavailable)

	ctx.Step(`^shelter "([^"]*)" should have population (\d+)$`, steps.populationShouldBe)
	ctx.Step(`^shelter "([^"]*)" should have status "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^shelter "([^"]*)" should list (\d+) current clients?$`, steps.clientCountShouldBe)
	ctx.Step(`^the event log of shelter "([^"]*)" should contain an? "([^"]*)" entry$`, steps.eventLogShouldContain)
}

type shelterSteps struct {
	tc TestContext
}

func key(alias string) string { return "shelter:" + alias }

func (s *shelterSteps) path(alias, suffix string) (string, error) {
	shelterID, err := s.tc.Saved(key(alias))
	if err != nil {
		return "", err
	}
	return "/shelter/" + shelterID + suffix, nil
}

func (s *shelterSteps) expect(status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.LastBody())
	}
	return nil
}

func (s *shelterSteps) createShelter(ctx context.Context, typeName, alias string, capacity int) error {
	body := map[string]any{
		"name":     alias + " " + s.tc.RunID(),
		"type":     typeName,
		"capacity": capacity,
	}
	if err := s.tc.POST("/shelter", body); err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	shelterID, err := s.tc.GetResponseString("id")
	if err != nil {
		return err
	}
	s.tc.Save(key(alias), shelterID)
	return nil
}

func (s *shelterSteps) setStatus(ctx context.Context, alias, status string) error {
	p, err := s.path(alias, "/status")
	if err != nil {
		return err
	}
	return s.tc.POST(p, map[string]any{"status": status})
}

func (s *shelterSteps) markUnavailable(ctx context.Context, alias string) error {
	p, err := s.path(alias, "/availability")
	if err != nil {
		return err
	}
	if err := s.tc.POST(p, map[string]any{"unavailable": true}); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *shelterSteps) fetch(alias string) error {
	p, err := s.path(alias, "")
	if err != nil {
		return err
	}
	if err := s.tc.GET(p); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *shelterSteps) populationShouldBe(ctx context.Context, alias string, want int) error {
	if err := s.fetch(alias); err != nil {
		return err
	}
	got, err := s.tc.GetResponseString("population")
	if err != nil {
		return err
	}
	if got != strconv.Itoa(want) {
		return fmt.Errorf("expected population %d, got %s", want, got)
	}
	return nil
}

func (s *shelterSteps) statusShouldBe(ctx context.Context, alias, want string) error {
	if err := s.fetch(alias); err != nil {
		return err
	}
	got, err := s.tc.GetResponseString("status")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected status %q, got %q", want, got)
	}
	return nil
}

func (s *shelterSteps) items(p string) ([]any, error) {
	if err := s.tc.GET(p); err != nil {
		return nil, err
	}
	if err := s.expect(200); err != nil {
		return nil, err
	}
	v, err := s.tc.GetResponseField("items")
	if err != nil {
		return nil, err
	}
	items, _ := v.([]any)
	return items, nil
}

func (s *shelterSteps) clientCountShouldBe(ctx context.Context, alias string, want int) error {
	p, err := s.path(alias, "/clients?status=checked_in")
	if err != nil {
		return err
	}
	items, err := s.items(p)
	if err != nil {
		return err
	}
	if len(items) != want {
		return fmt.Errorf("expected %d current clients, got %d", want, len(items))
	}
	return nil
}

func (s *shelterSteps) eventLogShouldContain(ctx context.Context, alias, kind string) error {
	p, err := s.path(alias, "/events")
	if err != nil {
		return err
	}
	items, err := s.items(p)
	if err != nil {
		return err
	}
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok && entry["kind"] == kind {
			return nil
		}
	}
	return fmt.Errorf("no %q entry among %d log entries", kind, len(items))
}
