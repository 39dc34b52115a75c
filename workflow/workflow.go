package workflow

import (
	"encoding/json"
	"time"
)

// Settings carries per-workflow overrides of process-wide defaults.
type Settings struct {
	Politeness PolitenessSettings `json:"politeness" yaml:"politeness"`
	Network    NetworkSettings    `json:"network" yaml:"network"`
}

// PolitenessSettings controls courtesy behaviour toward automated targets.
// Zero values mean "use the default".
type PolitenessSettings struct {
	RespectRobots   *bool         `json:"respectRobots,omitempty" yaml:"respectRobots,omitempty" mapstructure:"respect_robots"`
	MinDelay        time.Duration `json:"minDelay,omitempty" yaml:"minDelay,omitempty" mapstructure:"min_delay"`
	MaxDelay        time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty" mapstructure:"max_delay"`
	RotateUserAgent *bool         `json:"rotateUserAgent,omitempty" yaml:"rotateUserAgent,omitempty" mapstructure:"rotate_user_agent"`
	UserAgents      []string      `json:"userAgents,omitempty" yaml:"userAgents,omitempty" mapstructure:"user_agents"`
}

// NetworkSettings controls proxies and session persistence.
type NetworkSettings struct {
	ProxyPool      []string      `json:"proxyPool,omitempty" yaml:"proxyPool,omitempty" mapstructure:"proxy_pool"`
	PersistSession *bool         `json:"persistSession,omitempty" yaml:"persistSession,omitempty" mapstructure:"persist_session"`
	RequestTimeout time.Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty" mapstructure:"request_timeout"`
}

// Workflow is a user-owned automation graph.
type Workflow struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	Definition Definition `json:"definition"`
	Settings   Settings   `json:"settings"`
	// Published workflows run the frozen Plan; drafts recompile per run.
	Published bool            `json:"published"`
	Plan      json.RawMessage `json:"plan,omitempty"`
	Credits   int64           `json:"credits"`
	// Cron is a standard 5-field schedule; empty disables scheduling.
	Cron          string          `json:"cron,omitempty"`
	NextRunAt     *time.Time      `json:"nextRunAt,omitempty"`
	LastRunID     string          `json:"lastRunId,omitempty"`
	LastRunAt     *time.Time      `json:"lastRunAt,omitempty"`
	LastRunStatus ExecutionStatus `json:"lastRunStatus,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Scheduled reports whether the workflow takes part in cron sweeps.
func (w *Workflow) Scheduled() bool {
	return w.Published && w.Cron != ""
}
