package registration

import (
	"context"
	"fmt"
	"strings"

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
}

// RegisterSteps registers person and registration step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}

	ctx.Step(`^a client "([^"]*)" living at "([^"]*)"$`, steps.createClient)
	ctx.Step(`^a client "([^"]*)" with no address$`, steps.createClientWithoutAddress)
	ctx.Step(`^a staff member "([^"]*)" from "([^"]*)"$`, steps.createStaff)

	ctx.Step(`^I check in "([^"]*)" at shelter "([^"]*)"$`, steps.checkIn)
	ctx.Step(`^I check out "([^"]*)" from shelter "([^"]*)" to "([^"]*)"$`, steps.checkOut)
	ctx.Step(`^I add "([^"]*)" to the household of "([^"]*)"$`, steps.addToHousehold)

	ctx.Step(`^"([^"]*)" should have (\d+) active registrations?$`, steps.activeCountShouldBe)
	ctx.Step(`^"([^"]*)" should live at "([^"]*)"$`, steps.currentAddressShouldBe)
}

type registrationSteps struct {
	tc TestContext
}

func personKey(name string) string       { return "person:" + name }
func registrationKey(name string) string { return "registration:" + name }

func (s *registrationSteps) expect(status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.LastBody())
	}
	return nil
}

func (s *registrationSteps) createPerson(name string, body map[string]any) error {
	first, last, _ := strings.Cut(name, " ")
	if last == "" {
		last = first
	}
	body["first_name"] = first
	body["last_name"] = last
	if err := s.tc.POST("/person", body); err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	personID, err := s.tc.GetResponseString("id")
	if err != nil {
		return err
	}
	s.tc.Save(personKey(name), personID)
	return nil
}

func (s *registrationSteps) createClient(ctx context.Context, name, street string) error {
	return s.createPerson(name, map[string]any{
		"kind":      "client",
		"addresses": []map[string]any{{"street": street}},
	})
}

func (s *registrationSteps) createClientWithoutAddress(ctx context.Context, name string) error {
	return s.createPerson(name, map[string]any{"kind": "client"})
}

func (s *registrationSteps) createStaff(ctx context.Context, name, organisation string) error {
	return s.createPerson(name, map[string]any{"kind": "staff", "organisation": organisation})
}

func (s *registrationSteps) ids(person, shelterAlias string) (string, string, error) {
	personID, err := s.tc.Saved(personKey(person))
	if err != nil {
		return "", "", err
	}
	shelterID, err := s.tc.Saved("shelter:" + shelterAlias)
	if err != nil {
		return "", "", err
	}
	return personID, shelterID, nil
}

// checkIn records the response without asserting on it so scenarios can
// check rejections with the common status step.
func (s *registrationSteps) checkIn(ctx context.Context, person, shelterAlias string) error {
	personID, shelterID, err := s.ids(person, shelterAlias)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/shelter/"+shelterID+"/checkin", map[string]any{"person_id": personID}); err != nil {
		return err
	}
	if s.tc.LastStatus() == 200 {
		if regID, err := s.tc.GetResponseString("registration.id"); err == nil {
			s.tc.Save(registrationKey(person), regID)
		}
	}
	return nil
}

func (s *registrationSteps) checkOut(ctx context.Context, person, shelterAlias, destination string) error {
	_, shelterID, err := s.ids(person, shelterAlias)
	if err != nil {
		return err
	}
	regID, err := s.tc.Saved(registrationKey(person))
	if err != nil {
		return err
	}
	return s.tc.POST("/shelter/"+shelterID+"/checkout/"+regID, map[string]any{"destination": destination})
}

func (s *registrationSteps) addToHousehold(ctx context.Context, member, primary string) error {
	primaryID, err := s.tc.Saved(personKey(primary))
	if err != nil {
		return err
	}
	memberID, err := s.tc.Saved(personKey(member))
	if err != nil {
		return err
	}
	if err := s.tc.POST("/person/"+primaryID+"/household", map[string]any{"member_id": memberID}); err != nil {
		return err
	}
	if err := s.expect(200); err != nil {
		return err
	}
	if regID, err := s.tc.GetResponseString("registration.id"); err == nil {
		s.tc.Save(registrationKey(member), regID)
	}
	return nil
}

func (s *registrationSteps) fetchPerson(name string) error {
	personID, err := s.tc.Saved(personKey(name))
	if err != nil {
		return err
	}
	if err := s.tc.GET("/person/" + personID); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *registrationSteps) activeCountShouldBe(ctx context.Context, name string, want int) error {
	if err := s.fetchPerson(name); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField("active_registrations")
	if err != nil {
		return err
	}
	active, _ := v.([]any)
	if len(active) != want {
		return fmt.Errorf("expected %d active registrations for %s, got %d", want, name, len(active))
	}
	return nil
}

func (s *registrationSteps) currentAddressShouldBe(ctx context.Context, name, street string) error {
	if err := s.fetchPerson(name); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField("addresses")
	if err != nil {
		return err
	}
	addresses, _ := v.([]any)
	for _, a := range addresses {
		if addr, ok := a.(map[string]any); ok && addr["kind"] == "current" && addr["street"] == street {
			return nil
		}
	}
	return fmt.Errorf("%s has no current address at %q: %v", name, street, addresses)
}
