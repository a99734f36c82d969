package repo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	repoURLPattern        = regexp.MustCompile(`https://github\.com/\S+`)
	pullRequestURLPattern = regexp.MustCompile(`https://github\.com/[^/\s]+/[^/\s]+/pull/\d+`)
)

// FindGitHubURL returns the first GitHub URL mentioned in the text. Instance
// backgrounds name the repository to work on this way.
func FindGitHubURL(text string) (string, bool) {
	match := repoURLPattern.FindString(text)
	return match, match != ""
}

// FindPullRequestURL returns the first GitHub pull request URL in the text.
// The agent posts the PR link into the instance chat, so scanning the chat
// transcript recovers the PR opened on an earlier pass.
func FindPullRequestURL(text string) (string, bool) {
	match := pullRequestURLPattern.FindString(text)
	return match, match != ""
}

// Split returns the owner and name parts of a repository URL. Both HTTPS and
// SSH URL shapes are accepted, trailing slashes and a .git suffix are
// dropped.
func Split(repoURL string) (owner string, name string, err error) {
	trimmed := strings.TrimRight(repoURL, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	var path string
	if strings.HasPrefix(trimmed, "git@github.com:") {
		path = strings.TrimPrefix(trimmed, "git@github.com:")
	} else {
		parts := strings.Split(trimmed, "github.com/")
		path = parts[len(parts)-1]
	}

	segments := strings.Split(path, "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("invalid repository URL format: %s", repoURL)
	}
	return segments[0], segments[1], nil
}

// FullName converts a repository URL to its "owner/name" form.
func FullName(repoURL string) (string, error) {
	owner, name, err := Split(repoURL)
	if err != nil {
		return "", err
	}
	return owner + "/" + name, nil
}

// ParsePullRequestURL splits a pull request URL into the repository it
// belongs to and the PR number.
func ParsePullRequestURL(prURL string) (owner string, name string, number int, err error) {
	trimmed := strings.TrimRight(prURL, "/")
	base, numberPart, found := strings.Cut(trimmed, "/pull/")
	if !found {
		return "", "", 0, fmt.Errorf("not a pull request URL: %s", prURL)
	}
	owner, name, err = Split(base)
	if err != nil {
		return "", "", 0, err
	}
	number, err = strconv.Atoi(numberPart)
	if err != nil {
		return "", "", 0, fmt.Errorf("not a pull request URL: %s", prURL)
	}
	return owner, name, number, nil
}
