package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Modes accepted by Validate.
const (
	ModeServe   = "serve"
	ModeWorker  = "worker"
	ModeMigrate = "migrate"
)

// rule checks one config value against a validator tag. When other is set
// the tag compares value against it.
type rule struct {
	key   string
	value any
	tag   string
	other *otherField
}

type otherField struct {
	key   string
	value any
}

var validate = validator.New()

// Validate checks that the settings a command mode depends on are present
// and in range. Every failure is reported, not just the first.
func (c *Config) Validate(mode string) error {
	var rules []rule
	switch mode {
	case ModeServe:
		rules = append(rules, c.serverRules()...)
		rules = append(rules, c.temporalRules()...)
	case ModeWorker:
		rules = append(rules, c.storeRules()...)
		rules = append(rules, c.temporalRules()...)
		rules = append(rules, c.pipelineRules()...)
	case ModeMigrate:
		rules = append(rules, c.storeRules()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var msgs []string
	for _, r := range rules {
		if msg := r.check(); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(msgs, "; "))
	}
	return nil
}

func (c *Config) storeRules() []rule {
	return []rule{
		{key: "store.driver", value: c.Store.Driver, tag: "required,oneof=postgres sqlite"},
		{key: "store.database_url", value: c.Store.DatabaseURL, tag: "required"},
		{key: "store.max_conns", value: c.Store.MaxConns, tag: "gte=0"},
		{key: "store.min_conns", value: c.Store.MinConns, tag: "gte=0"},
	}
}

func (c *Config) temporalRules() []rule {
	return []rule{
		{key: "temporal.host_port", value: c.Temporal.HostPort, tag: "required,hostname_port"},
		{key: "temporal.namespace", value: c.Temporal.Namespace, tag: "required"},
		{key: "temporal.task_queue", value: c.Temporal.TaskQueue, tag: "required"},
		{key: "temporal.workflow_timeout_mins", value: c.Temporal.WorkflowTimeoutMins, tag: "gte=0"},
	}
}

func (c *Config) serverRules() []rule {
	return []rule{
		{key: "server.port", value: c.Server.Port, tag: "gt=0,lte=65535"},
		{key: "intake.wait_poll_secs", value: c.Intake.WaitPollSecs, tag: "gt=0"},
		{key: "intake.wait_max_attempts", value: c.Intake.WaitMaxAttempts, tag: "gt=0"},
		{key: "intake.max_upload_mb", value: c.Intake.MaxUploadMB, tag: "gt=0"},
	}
}

func (c *Config) pipelineRules() []rule {
	return []rule{
		{key: "docintel.base_url", value: c.DocIntel.BaseURL, tag: "required,url"},
		{key: "docintel.auth_url", value: c.DocIntel.AuthURL, tag: "required,url"},
		{key: "docintel.data_url", value: c.DocIntel.DataURL, tag: "required,url"},
		{key: "docintel.client_id", value: c.DocIntel.ClientID, tag: "required"},
		{key: "docintel.client_secret", value: c.DocIntel.ClientSecret, tag: "required"},
		{key: "docintel.api_key", value: c.DocIntel.APIKey, tag: "required"},
		{key: "docintel.rate_limit", value: c.DocIntel.RateLimit, tag: "gte=0"},
		{key: "poll.initial_interval_secs", value: c.Poll.InitialIntervalSecs, tag: "gt=0"},
		{
			key: "poll.max_interval_secs", value: c.Poll.MaxIntervalSecs, tag: "gtefield",
			other: &otherField{key: "poll.initial_interval_secs", value: c.Poll.InitialIntervalSecs},
		},
		{key: "poll.status_path", value: c.Poll.StatusPath, tag: "required"},
		{key: "poll.activity_timeout_mins", value: c.Poll.ActivityTimeoutMins, tag: "gt=0"},
		{
			key: "poll.heartbeat_timeout_secs", value: c.Poll.HeartbeatTimeoutSecs, tag: "gtfield",
			other: &otherField{key: "poll.max_interval_secs", value: c.Poll.MaxIntervalSecs},
		},
		{key: "agents.base_url", value: c.Agents.BaseURL, tag: "required,url"},
		{key: "agents.call_timeout_secs", value: c.Agents.CallTimeoutSecs, tag: "gt=0"},
		{key: "casemgmt.url", value: c.CaseMgmt.URL, tag: "required,url"},
	}
}

func (r rule) check() string {
	var err error
	if r.other != nil {
		err = validate.VarWithValue(r.value, r.other.value, r.tag)
	} else {
		err = validate.Var(r.value, r.tag)
	}
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Sprintf("%s: %v", r.key, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return r.key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", r.key, fe.Param())
	case "url":
		return r.key + " must be a valid URL"
	case "hostname_port":
		return r.key + " must be host:port"
	case "gt":
		return fmt.Sprintf("%s must be > %s", r.key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", r.key, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", r.key, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be > %s", r.key, r.other.key)
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", r.key, r.other.key)
	default:
		return fmt.Sprintf("%s failed %q", r.key, fe.Tag())
	}
}
