// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// kamelot is a command line application that drives the scheduling core
// against a fixture or HTTP-backed cluster snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/cmd/kamelot/command"
)

func newRootCommand(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "kamelot",
		Short: "kamelot drives the scheduling core over a cluster snapshot",
	}
	root.AddCommand(command.NewRunCommand(logger))
	root.AddCommand(command.NewBenchCommand(logger))
	root.AddCommand(command.NewProcSetCommand())
	return root
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "kamelot: failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := newRootCommand(logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kamelot:", err)
		os.Exit(1)
	}
}
