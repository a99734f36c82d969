//go:build unit || !integration

package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindGitHubURL(t *testing.T) {
	background := "Please fix the flaky test.\nRepository URL: https://github.com/acme/widget\nIssue Number: 42"
	url, found := FindGitHubURL(background)
	require.True(t, found)
	assert.Equal(t, "https://github.com/acme/widget", url)

	_, found = FindGitHubURL("no links in here")
	assert.False(t, found)
}

func TestFindPullRequestURL(t *testing.T) {
	chat := "Opened https://github.com/acme/widget/pull/7 for review, thanks!"
	url, found := FindPullRequestURL(chat)
	require.True(t, found)
	assert.Equal(t, "https://github.com/acme/widget/pull/7", url)

	_, found = FindPullRequestURL("https://github.com/acme/widget is the repo")
	assert.False(t, found)
}

func TestSplit(t *testing.T) {
	testCases := []struct {
		url   string
		owner string
		name  string
		fails bool
	}{
		{url: "https://github.com/acme/widget", owner: "acme", name: "widget"},
		{url: "https://github.com/acme/widget.git", owner: "acme", name: "widget"},
		{url: "https://github.com/acme/widget/", owner: "acme", name: "widget"},
		{url: "git@github.com:acme/widget.git", owner: "acme", name: "widget"},
		{url: "https://github.com/acme/widget/tree/main", owner: "acme", name: "widget"},
		{url: "https://github.com/acme", fails: true},
		{url: "not a url", fails: true},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			owner, name, err := Split(tc.url)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.owner, owner)
			assert.Equal(t, tc.name, name)
		})
	}
}

func TestFullName(t *testing.T) {
	fullName, err := FullName("https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", fullName)
}

func TestParsePullRequestURL(t *testing.T) {
	owner, name, number, err := ParsePullRequestURL("https://github.com/acme/widget/pull/17")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", name)
	assert.Equal(t, 17, number)

	_, _, _, err = ParsePullRequestURL("https://github.com/acme/widget")
	require.Error(t, err)
}
