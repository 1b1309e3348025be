/*

Process of compilation

Program Text ->
	lexer ->
Token Stream (token) ->
	parser ->
Abstract Syntax Tree (ast) ->
	sem ->
Checked Tree + Frame Layout (sem) ->
	codegen ->
Abstract Instructions (x86) ->
	assemble ->
Machine Code + Relocations (x86.Obj) ->
	elf ->
Binary Executable

*/
package compiler
