/*
 *
 * Copyright 2025 Hewlett Packard Enterprise Development LP.
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
 *
 */

// Command shmem-hello is a SHMEM smoke test. Started by shmemrun, each PE
// prints
//
//	Hello World from Shmem #<rank> of <count>
//
// and exits. Started any other way it fails at runtime initialization.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/Cray-HPE/uas-mgr/internal/hello"
	"github.com/Cray-HPE/uas-mgr/internal/logging"
	"github.com/Cray-HPE/uas-mgr/internal/shmem"
)

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))

	logger, err := logging.New(os.Getenv(shmem.EnvLogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := hello.Run(context.Background(), os.Stdout, shmem.WithLogger(logger)); err != nil {
		logger.Error("shmem hello failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
