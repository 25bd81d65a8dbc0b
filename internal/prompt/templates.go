package prompt

// DefaultInitializerTemplate is the prompt for the one initializer session a
// fresh project gets. The agent is expected to create the checks artifact
// before doing anything else.
const DefaultInitializerTemplate = `You are starting a brand-new project in {{project_dir}}.

Read {{spec_file}} in the project directory. It describes the application to
build.

Your first job is to create {{checks_file}} in the project root: a JSON array
of acceptance checks covering every feature the spec requires. Each entry has
the shape:

  {"category": "...", "description": "...", "passing": false}

Aim for thorough coverage - typically around 50 checks for a full
application. Every check starts with "passing": false.

After writing {{checks_file}}, scaffold the project (build files, directory
layout, an init.sh setup script) and begin implementing. When a check's
behavior works end to end, set its "passing" field to true. Never remove or
weaken a check.
{{hooks}}`

// DefaultContinuationTemplate is the prompt for every session after the
// first. It carries the current failing-check context so the agent picks up
// where the previous session left off.
const DefaultContinuationTemplate = `You are continuing work on the project in {{project_dir}}.
This is session #{{iteration}}. Previous sessions left no in-memory context;
everything you need is on disk.

Start by reading {{checks_file}} to see what remains.

{{failing_checks}}

Pick the most foundational unfinished work first, implement it, and verify it
actually works before flipping the check's "passing" field to true. Keep
changes committed to disk; this session ends when you finish one coherent
unit of work.
{{hooks}}`
