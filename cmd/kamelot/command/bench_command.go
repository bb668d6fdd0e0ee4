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

package command

import (
	"context"
	"fmt"

	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/hook"
	"github.com/oar-team/kamelot/internal/kamelot"
	"github.com/oar-team/kamelot/internal/platform/fixtureplatform"
)

var (
	benchFixturePath string
	benchStrategy    string
	benchCycles      int
)

// NewBenchCommand builds "kamelot bench", which repeats a scheduling cycle
// over the same fixture N times and reports slot-count growth, useful for
// eyeballing slot split/merge cost under a fixed workload.
func NewBenchCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run N scheduling cycles over a fixture and report slot counts",
		Run: func(cmd *cobra.Command, args []string) {
			benchCommandFunc(logger)
		},
	}
	cmd.Flags().StringVar(&benchFixturePath, "fixture", "", "path to a JSON/YAML Platform fixture")
	cmd.Flags().StringVar(&benchStrategy, "strategy", "tree", "evaluator strategy: basic or tree")
	cmd.Flags().IntVar(&benchCycles, "cycles", 10, "number of cycles to run")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

func benchCommandFunc(logger *zap.Logger) {
	fixture, err := loadFixture(benchFixturePath)
	if err != nil {
		exitWithError(err)
	}

	bar := pb.StartNew(benchCycles)
	loop := kamelot.New(strategyOf(benchStrategy), hook.Set{}, logger)

	var totalAssigned, totalFailed, totalSlots int
	for i := 0; i < benchCycles; i++ {
		p := fixtureplatform.New(fixture)
		res, err := loop.Run(context.Background(), p)
		if err != nil {
			exitWithError(err)
		}
		totalAssigned += len(res.Assigned)
		totalFailed += len(res.Failed)
		totalSlots += res.TotalSlots
		bar.Increment()
	}
	bar.FinishPrint("bench complete")

	fmt.Printf("cycles=%d assigned=%d failed=%d avg_slots=%d\n",
		benchCycles, totalAssigned, totalFailed, totalSlots/benchCycles)
}
