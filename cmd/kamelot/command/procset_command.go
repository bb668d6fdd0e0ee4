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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oar-team/kamelot/internal/procset"
)

// NewProcSetCommand builds "kamelot procset", a small utility subcommand
// for interactively checking a ProcSet literal's canonical form and
// cardinality.
func NewProcSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "procset <literal>",
		Short: "Parse and print a ProcSet literal, e.g. 1-4,7,9-12",
		Args:  cobra.ExactArgs(1),
		Run:   procSetCommandFunc,
	}
	return cmd
}

func procSetCommandFunc(cmd *cobra.Command, args []string) {
	p, err := procset.Parse(args[0])
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("canonical: %s\n", p.String())
	fmt.Printf("count: %d\n", p.Count())
}
