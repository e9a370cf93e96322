package parser

import "kanso/internal/ast"

func (p *Parser) parseRequireStmt() *ast.RequireStmt {
	start := p.consume(REQUIRE, "expected 'require'")
	p.consume(BANG, "expected '!' after 'require'")
	p.consume(LEFT_PAREN, "expected '(' after 'require!'")

	var args []ast.Expr
	for {
		args = append(args, p.parseExpr())
		if !p.match(COMMA) {
			break
		}
	}

	end := p.consume(RIGHT_PAREN, "expected ')' to close require arguments")
	p.consume(SEMICOLON, "expected ';' after require statement")

	return &ast.RequireStmt{
		Pos:    p.makePos(start),
		EndPos: p.makeEndPos(end),
		Args:   args,
	}
}

func (p *Parser) parseIfStmt() *ast.IfStmt {
	start := p.consume(IF, "expected 'if'")
	cond := p.parseExpr()
	thenBlock := p.parseFunctionBlock()

	var elseBlock *ast.FunctionBlock
	endPos := thenBlock.EndPos
	if p.match(ELSE) {
		if p.check(IF) {
			nested := p.parseIfStmt()
			elseBlock = &ast.FunctionBlock{
				Pos:    nested.Pos,
				EndPos: nested.EndPos,
				Items:  []ast.FunctionBlockItem{nested},
			}
		} else {
			block := p.parseFunctionBlock()
			elseBlock = &block
		}
		endPos = elseBlock.EndPos
	}

	return &ast.IfStmt{
		Pos:       p.makePos(start),
		EndPos:    endPos,
		Condition: cond,
		ThenBlock: thenBlock,
		ElseBlock: elseBlock,
	}
}

func (p *Parser) parseWhileStmt() *ast.WhileStmt {
	start := p.consume(WHILE, "expected 'while'")
	cond := p.parseExpr()
	body := p.parseFunctionBlock()

	return &ast.WhileStmt{
		Pos:    p.makePos(start),
		EndPos: body.EndPos,
		Cond:   cond,
		Body:   &body,
	}
}

func (p *Parser) parseForStmt() *ast.ForStmt {
	start := p.consume(FOR, "expected 'for'")
	p.consume(LEFT_PAREN, "expected '(' after 'for'")

	var init ast.FunctionBlockItem
	if p.check(LET) {
		// parseLetStmt consumes its own trailing ';'
		init = p.parseLetStmt()
	} else {
		p.consume(SEMICOLON, "expected ';' after for-loop initializer")
	}

	var cond ast.Expr
	if !p.check(SEMICOLON) {
		cond = p.parseExpr()
	}
	p.consume(SEMICOLON, "expected ';' after for-loop condition")

	var step ast.FunctionBlockItem
	if !p.check(RIGHT_PAREN) {
		step = p.parseForStep()
	}
	p.consume(RIGHT_PAREN, "expected ')' to close for-loop clauses")

	body := p.parseFunctionBlock()

	return &ast.ForStmt{
		Pos:    p.makePos(start),
		EndPos: body.EndPos,
		Init:   init,
		Cond:   cond,
		Step:   step,
		Body:   &body,
	}
}

// parseForStep parses the increment clause of a for-loop, which is an
// assignment or expression without a trailing semicolon (the loop header
// consumes the separating semicolons itself).
func (p *Parser) parseForStep() ast.FunctionBlockItem {
	expr := p.parseExpr()
	if isAssignable(expr) && isAssignOperator(p.peek()) {
		opTok := p.advance()
		value := p.parseExpr()
		return &ast.AssignStmt{
			Pos:      expr.NodePos(),
			EndPos:   value.NodeEndPos(),
			Target:   expr,
			Operator: assignOpFromToken(opTok),
			Value:    value,
		}
	}
	return &ast.ExprStmt{
		Pos:       expr.NodePos(),
		EndPos:    expr.NodeEndPos(),
		Expr:      expr,
		Semicolon: false,
	}
}

func (p *Parser) parseBreakStmt() *ast.BreakStmt {
	start := p.consume(BREAK, "expected 'break'")
	end := p.consume(SEMICOLON, "expected ';' after 'break'")
	return &ast.BreakStmt{Pos: p.makePos(start), EndPos: p.makeEndPos(end)}
}

func (p *Parser) parseContinueStmt() *ast.ContinueStmt {
	start := p.consume(CONTINUE, "expected 'continue'")
	end := p.consume(SEMICOLON, "expected ';' after 'continue'")
	return &ast.ContinueStmt{Pos: p.makePos(start), EndPos: p.makeEndPos(end)}
}
