package reconcile

import (
	"testing"

	"github.com/algorave/algorave-client/internal/draftstore"
)

var (
	currentDraft = &draftstore.Draft{ID: "draft_1_current", Code: "current"}
	latestDraft  = &draftstore.Draft{ID: "draft_2_latest", Code: "latest"}
)

func TestShouldRestoreFromDraft(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Input
		want bool
	}{
		{
			name: "anonymous with a draft restores",
			in:   Input{LatestDraft: latestDraft},
			want: true,
		},
		{
			name: "anonymous without drafts does not restore",
			in:   Input{},
			want: false,
		},
		{
			name: "anonymous ignores current draft pointer without latest",
			in:   Input{CurrentDraft: currentDraft},
			want: false,
		},
		{
			name: "authenticated with open strudel never restores",
			in:   Input{HasToken: true, CurrentStrudelID: "strudel-1", CurrentDraft: currentDraft, LatestDraft: latestDraft},
			want: false,
		},
		{
			name: "authenticated draft work restores via current draft",
			in:   Input{HasToken: true, CurrentDraft: currentDraft},
			want: true,
		},
		{
			name: "authenticated draft work restores via latest draft",
			in:   Input{HasToken: true, LatestDraft: latestDraft},
			want: true,
		},
		{
			name: "authenticated with nothing local does not restore",
			in:   Input{HasToken: true},
			want: false,
		},
		{
			name: "initial load complete blocks anonymous restore",
			in:   Input{LatestDraft: latestDraft, InitialLoadComplete: true},
			want: false,
		},
		{
			name: "initial load complete blocks authenticated restore",
			in:   Input{HasToken: true, CurrentDraft: currentDraft, InitialLoadComplete: true},
			want: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldRestoreFromDraft(tc.in); got != tc.want {
				t.Fatalf("ShouldRestoreFromDraft(%+v)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPickDraftToRestore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Input
		want *draftstore.Draft
	}{
		{
			name: "anonymous always takes the freshest work",
			in:   Input{CurrentDraft: currentDraft, LatestDraft: latestDraft},
			want: latestDraft,
		},
		{
			name: "anonymous with only latest",
			in:   Input{LatestDraft: latestDraft},
			want: latestDraft,
		},
		{
			name: "authenticated prefers this instance's draft",
			in:   Input{HasToken: true, CurrentDraft: currentDraft, LatestDraft: latestDraft},
			want: currentDraft,
		},
		{
			name: "authenticated falls back to the freshest",
			in:   Input{HasToken: true, LatestDraft: latestDraft},
			want: latestDraft,
		},
		{
			name: "nothing to pick",
			in:   Input{HasToken: true},
			want: nil,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := PickDraftToRestore(tc.in); got != tc.want {
				t.Fatalf("PickDraftToRestore(%+v)=%+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
