package shell

const helpText = `Usage: [METHOD] PATH [PARAMS...] [OPTIONS] [> FILE | >> FILE]

Methods: GET, POST, PUT, PATCH, DELETE, EXEC (legacy form post).
Without a method, a call with parameters is a POST and one without is a GET.
PATH is resolved against the current location (see cd).

Parameters:
   name                   name is true
   !name                  name is false
   name=value             string value
   name:=json             JSON value (numbers, objects, arrays, ...)
   a.b.c=value            nested object {"a": {"b": {"c": "value"}}}

Options:
   -c, --color            Colorize output (unless returning raw data)
   -f, --full             Return the full response envelope
   -r, --raw              Return the raw response text
   -n, --no-format        Do not indent raw JSON output
   -v, --verbose          Trace the request and response on stderr
   -j, --json JSON        Merge the keys of a JSON object into the parameters
   -G, --get NAME=VALUE   Append a query string pair
   -P, --post NAME=VALUE  Extra form field (EXEC only)
   -F, --file NAME=PATH   Upload a file (EXEC only)
   -H, --header NAME:VAL  Send an extra request header
   -q, --query EXPR       Filter the response with JMESPath, or pipe it
                          through a command with $(COMMAND)
   --                     Treat the remaining words as parameters

Commands:
   cd [PATH]              Change location; no PATH (or -) returns to the previous one
   pwd                    Print the current location
   set NAME=VALUE ...     Change an option: color, full_response, raw_response,
                          verbose, no_format (1/true/True, 0/false/False) or
                          headers (headers.NAME=VALUE, headers:={...}, headers=)
   config                 Show the current configuration
   history [N]            Show the last N entered lines
   copy                   Copy the last output to the clipboard
   sh COMMAND [ARGS...]   Run a program
   !COMMAND               Run a line with the system shell
   help                   Show this help
   quit, exit             Leave the shell

Use ./NAME to call an API path named like a command.
`
