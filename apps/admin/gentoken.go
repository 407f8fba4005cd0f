package main

import (
	echoapi "github.com/Virtual-Educator/SimLearning/apps/api/echo"
	"github.com/Virtual-Educator/SimLearning/core"
)

// genToken mints an access token for an external principal, equivalent to what
// the identity provider issues in production. Meant for local development and
// smoke tests against a running API.
func (cli *commandLine) genToken(id, name, email string, teacher bool) (string, error) {
	p := core.Principal{ID: id, Name: name, Email: email}

	claims := echoapi.NewStudentClaims(cli.conf, p)
	if teacher {
		claims = echoapi.NewTeacherClaims(cli.conf, p)
	}
	return echoapi.GenerateToken(cli.conf, claims)
}
