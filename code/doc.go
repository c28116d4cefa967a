// Package code provides core.CodeExecutor implementations used by the flow
// package's code execution processors.
//
// LocalExecutor runs snippets through interpreters on the host and offers no
// isolation; use it for trusted code only. The docker sub-package runs each
// snippet in a throwaway container without network access.
package code
