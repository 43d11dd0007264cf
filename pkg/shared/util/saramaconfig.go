/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"bytes"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

const saramaClientID = "multistream"

// SaramaConfigFromYAML returns a consumer config with the settings of the yaml document applied on top of the
// defaults. Partition errors are always returned and reading starts at the oldest offset unless configured.
func SaramaConfigFromYAML(yaml string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = saramaClientID
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	if yaml != "" {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yaml)); err != nil {
			return nil, fmt.Errorf("failed to read sarama config, %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unable to decode into struct, %w", err)
		}
	}
	cfg.Consumer.Return.Errors = true
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed validating sarama config, %w", err)
	}
	return cfg, nil
}
