package protect

import "fmt"

// protectBranchRequest mirrors the branch protection endpoint's body. The
// endpoint requires every field to be present, nulls included, which is why
// none of the fields carry omitempty.
type protectBranchRequest struct {
	RequiredStatusChecks       any      `json:"required_status_checks"`
	EnforceAdmins              bool     `json:"enforce_admins"`
	RequiredPullRequestReviews struct{} `json:"required_pull_request_reviews"`
	Restrictions               any      `json:"restrictions"`
}

func newProtectBranchRequest() protectBranchRequest {
	return protectBranchRequest{EnforceAdmins: true}
}

type createIssueRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type createIssueResponse struct {
	HTMLURL string `json:"html_url"`
}

func newNotificationIssue(creator, branch string) createIssueRequest {
	return createIssueRequest{
		Title: "Branch protection automatically set up",
		Body: fmt.Sprintf("@%[1]s: The default branch [`%[2]s`](../tree/%[2]s) was "+
			"automatically protected to comply with our corporate policies. "+
			"Please submit pull requests in order to contribute changes, as direct "+
			"pushes to this branch are not allowed. Every pull request needs to be "+
			"approved by at least one person before it can be merged. Please review "+
			"the [branch protection rules in the repository settings](../settings/branches) "+
			"and extend them as necessary.\n\nThis issue is just for your information "+
			"and can be closed after reviewing the branch protection rules.",
			creator, branch),
	}
}
