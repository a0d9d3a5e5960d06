// Package beanstalk adapts a beanstalkd connection to the core.Broker and
// core.Putter interfaces.
//
// One tube is used per job name. A Broker owns a single connection and
// serialises every command on it, so it may be shared between the worker
// loop and handlers that touch or delete their own units.
package beanstalk
