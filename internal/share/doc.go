// Package share uploads finished exports to Google Drive and returns a view
// link.
//
// Credentials come from an OAuth client JSON and a previously authorised
// token file named in the [share] config section. No interactive consent
// flow runs inside the daemon; a missing token is a configuration error.
package share
