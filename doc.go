// Package sagachain provides an in-process implementation of the saga pattern.
//
// A saga is an ordered sequence of steps. Each step pairs a forward action with
// a compensation that undoes it. Steps run one after the other; the output of
// every step is merged into the arguments of the steps after it. When an action
// fails, every step entered so far is compensated in reverse order, the failing
// step included since it may have left partial side effects behind.
//
// Overview
//
//  1. Define your steps:
//     - Implement Action (Do and Undo), or use plain functions with LambdaAction.
//     - Register constructors for reusable step types in a Registry.
//  2. Build a Saga with NewBuilder:
//     - Default arguments are shared by every step and overridden by the
//     arguments given for a single step.
//  3. Run it with Saga.Execute and inspect the Result:
//     - Outcome and Err describe the forward path.
//     - CompensationsSucceeded and CompensationErr describe the rollback.
//
// Execution is synchronous and in-process. There is no persistence, no
// retry and no timeout: a step that blocks blocks Execute.
//
// Example:
//
// For a complete, runnable example, refer to examples/upload_run.
package sagachain
