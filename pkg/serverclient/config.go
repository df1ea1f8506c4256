/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package serverclient

import (
	"time"

	"github.com/carverauto/serviceradar-inventory/pkg/models"
)

const (
	defaultSubjectPrefix  = "inventory"
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 3
	defaultRetryInterval  = 250 * time.Millisecond
)

// Config describes how to reach the server over NATS.
type Config struct {
	URL            string          `json:"url"`
	SubjectPrefix  string          `json:"subject_prefix"`
	RequestTimeout models.Duration `json:"request_timeout"`
	// MaxRetries counts retries after the first attempt for transient failures.
	MaxRetries    int             `json:"max_retries"`
	RetryInterval models.Duration `json:"retry_interval"`
	TLS           *TLSConfig      `json:"tls,omitempty"`
}

// TLSConfig holds client certificate paths for mTLS to NATS.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrNATSURLRequired
	}

	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = models.Duration(defaultRequestTimeout)
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}

	if c.RetryInterval <= 0 {
		c.RetryInterval = models.Duration(defaultRetryInterval)
	}

	return nil
}
