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
	"os"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oar-team/kamelot/internal/evaluate"
	"github.com/oar-team/kamelot/internal/hook"
	"github.com/oar-team/kamelot/internal/kamelot"
	"github.com/oar-team/kamelot/internal/platform/fixtureplatform"
)

var (
	fixturePath string
	strategyFlag string
)

// NewRunCommand builds "kamelot run", which executes one scheduling cycle
// against a fixture Platform snapshot and prints the resulting assignments.
func NewRunCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduling cycle against a fixture snapshot",
		Run: func(cmd *cobra.Command, args []string) {
			runCommandFunc(cmd, logger)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to a JSON/YAML Platform fixture")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "tree", "evaluator strategy: basic or tree")
	cmd.MarkFlagRequired("fixture")
	return cmd
}

func runCommandFunc(cmd *cobra.Command, logger *zap.Logger) {
	fixture, err := loadFixture(fixturePath)
	if err != nil {
		exitWithError(err)
	}
	p := fixtureplatform.New(fixture)

	loop := kamelot.New(strategyOf(strategyFlag), hook.Set{}, logger)
	res, err := loop.Run(context.Background(), p)
	if err != nil {
		exitWithError(err)
	}

	out := colorable.NewColorableStdout()
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Job", "Moldable", "Start", "Finish", "Walltime", "Resources", "SlotSet"})
	for _, a := range res.Assigned {
		table.Append([]string{
			a.JobID,
			strconv.Itoa(a.MoldableIndex),
			strconv.FormatInt(a.Start, 10),
			strconv.FormatInt(a.Finish(), 10),
			humanize.RelTime(time.Unix(0, 0), time.Unix(a.Walltime, 0), "", ""),
			fmt.Sprintf("%s (%s cores)", a.Resources.String(), humanize.Comma(int64(a.Resources.Count()))),
			a.SlotSetName,
		})
	}
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.Render()

	if len(res.Failed) > 0 {
		fmt.Fprintln(out, "\nunscheduled:")
		for id, reason := range res.Failed {
			fmt.Fprintf(out, "  %s: %s\n", id, reason.Error())
		}
	}
	fmt.Fprintf(out, "\ntotal slots: %s\n", humanize.Comma(int64(res.TotalSlots)))
}

func strategyOf(s string) evaluate.Strategy {
	if s == "basic" {
		return evaluate.Basic
	}
	return evaluate.Tree
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "kamelot:", err)
	os.Exit(1)
}
