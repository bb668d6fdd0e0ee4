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

package platform

import (
	"time"

	timestamppb "github.com/gogo/protobuf/types"
)

// UnixToTimestamp converts a second-since-epoch value to a protobuf-style
// Timestamp, for adapters that talk to a meta-scheduler exposing its
// snapshot with protobuf timestamp fields instead of raw integers.
func UnixToTimestamp(unixSeconds int64) (*timestamppb.Timestamp, error) {
	return timestamppb.TimestampProto(time.Unix(unixSeconds, 0).UTC())
}

// TimestampToUnix converts a protobuf-style Timestamp back to a
// second-since-epoch value, the internal representation every core
// component uses.
func TimestampToUnix(ts *timestamppb.Timestamp) (int64, error) {
	t, err := timestamppb.TimestampFromProto(ts)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
